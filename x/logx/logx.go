// Package logx is the logging surface shared by firmware and host builds.
// Firmware uses the println-backed logger; host tools pass a *logrus.Entry,
// which satisfies Logger as is.
package logx

import "handset-go/x/fmtx"

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Println writes "[tag] msg" lines with the builtin println.
type Println struct {
	Tag   string
	Debug bool
}

func New(tag string) *Println { return &Println{Tag: tag} }

func (p *Println) Infof(format string, args ...any) {
	println("[" + p.Tag + "] " + fmtx.Sprintf(format, args...))
}

func (p *Println) Warnf(format string, args ...any) {
	println("[" + p.Tag + "] WARN " + fmtx.Sprintf(format, args...))
}

func (p *Println) Debugf(format string, args ...any) {
	if p.Debug {
		println("[" + p.Tag + "] " + fmtx.Sprintf(format, args...))
	}
}

type nop struct{}

func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Debugf(string, ...any) {}

// Nop discards everything.
func Nop() Logger { return nop{} }

// Or returns l, or Nop when l is nil.
func Or(l Logger) Logger {
	if l == nil {
		return nop{}
	}
	return l
}
