package u

import (
	"fmt"
	"os/exec"
)

func RunMust(exe string, args ...string) string {
	cmd := exec.Command(exe, args...)
	d, err := cmd.CombinedOutput()
	out := string(d)
	PanicIf(err != nil, "'%s' failed with '%s', out:\n'%s'\n", cmd.String(), err, out)
	return out
}

func RunLoggedMust(exe string, args ...string) string {
	out := RunMust(exe, args...)
	fmt.Printf("%s %v:\n%s\n", exe, args, out)
	return out
}
