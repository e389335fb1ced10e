package sandbox

import (
	"errors"
	"regexp"
	"strings"
)

// shellMetachars matches characters that could enable command injection if
// a transformed argv were ever reinterpreted by a shell.
var shellMetachars = regexp.MustCompile("[;&|`$<>]")

// controlChars matches newlines/carriage returns, which have no legitimate
// place in a single argv element.
var controlChars = regexp.MustCompile(`[\r\n]`)

var (
	ErrEmptyArgument       = errors.New("sandbox: argument is empty")
	ErrArgumentNullByte    = errors.New("sandbox: argument contains a null byte")
	ErrArgumentControlChar = errors.New("sandbox: argument contains a control character")
	ErrArgumentShellMeta   = errors.New("sandbox: argument contains a shell metacharacter")
)

// validateArgument rejects argv elements that are empty or carry bytes that
// have no business in a single exec argument. It intentionally does not
// reject '-'-prefixed values or quotes; those are routine in real argv.
func validateArgument(arg string) error {
	if arg == "" {
		return ErrEmptyArgument
	}
	if strings.ContainsRune(arg, 0) {
		return ErrArgumentNullByte
	}
	if controlChars.MatchString(arg) {
		return ErrArgumentControlChar
	}
	if shellMetachars.MatchString(arg) {
		return ErrArgumentShellMeta
	}
	return nil
}

// validateArguments validates every element of args in order, returning the
// first error encountered.
func validateArguments(args []string) error {
	for _, a := range args {
		if err := validateArgument(a); err != nil {
			return err
		}
	}
	return nil
}
