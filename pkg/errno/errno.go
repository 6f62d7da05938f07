package errno

import (
	"errors"
	"fmt"
)

// Errno defines the error code logic
type Errno struct {
	Code     int
	Message  string
	ExitCode int // 进程退出码
}

func (e Errno) Error() string {
	return e.Message
}

// Err 在 Errno 分类之上携带具体原因
type Err struct {
	Errno
	Cause error
}

func (e *Err) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Err) Unwrap() error {
	return e.Cause
}

// Is 让 errors.Is(err, errno.ErrTimeout) 按 Code 匹配
func (e *Err) Is(target error) bool {
	switch t := target.(type) {
	case Errno:
		return t.Code == e.Code
	case *Errno:
		return t != nil && t.Code == e.Code
	}
	return false
}

// Wrap 将底层错误归入某个错误分类，op 描述失败的操作
func Wrap(base Errno, err error, op string) *Err {
	if op != "" {
		err = fmt.Errorf("%s: %w", op, err)
	}
	return &Err{Errno: base, Cause: err}
}

// Newf 构造一个带格式化原因的分类错误
func Newf(base Errno, format string, args ...interface{}) *Err {
	return &Err{Errno: base, Cause: fmt.Errorf(format, args...)}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	if base, ok := Classify(err); ok {
		return base.Code, err.Error()
	}
	return InternalServerError.Code, err.Error()
}

// Classify 返回 err 链上第一个已知的错误分类
func Classify(err error) (Errno, bool) {
	var e *Err
	if errors.As(err, &e) {
		return e.Errno, true
	}
	for _, base := range known {
		if errors.Is(err, base) {
			return base, true
		}
	}
	return Errno{}, false
}

// ExitCodeOf 将错误映射为进程退出码，nil 为 0
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if base, ok := Classify(err); ok && base.ExitCode != 0 {
		return base.ExitCode
	}
	return InternalServerError.ExitCode
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal error", ExitCode: 1}
)

// Transfer flow errors (20000+)
var (
	ErrConfiguration     = Errno{Code: 20101, Message: "configuration error", ExitCode: 2}
	ErrNetworkQuery      = Errno{Code: 20201, Message: "network query failure", ExitCode: 3}
	ErrTimeout           = Errno{Code: 20301, Message: "timed out waiting for receipt", ExitCode: 4}
	ErrExecutionReverted = Errno{Code: 20401, Message: "execution reverted", ExitCode: 5}
)

var known = []Errno{ErrConfiguration, ErrNetworkQuery, ErrTimeout, ErrExecutionReverted}
