package u

import "fmt"

func Must(err error) {
	if err != nil {
		panic(err)
	}
}

func fmtPanicMsg(def string, args []any) string {
	if len(args) == 0 {
		return def
	}
	s := fmt.Sprintf("%s", args[0])
	if len(args) > 1 {
		s = fmt.Sprintf(s, args[1:]...)
	}
	return s
}

func PanicIf(cond bool, args ...any) {
	if !cond {
		return
	}
	panic(fmtPanicMsg("condition failed", args))
}

func PanicIfErr(err error, args ...any) {
	if err == nil {
		return
	}
	panic(fmtPanicMsg(err.Error(), args))
}
