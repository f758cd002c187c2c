// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package util provides auxiliary functions internally used by the sctp package.
package util

import (
	"strings"

	"github.com/pion/randutil"
)

const runeLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MathRandAlpha generates a pseudo-random alphabetic sequence of length n.
// Used for non-secret scope names (unnamed associations' fallback log
// names); never for
// verification tags, TSNs or cookie keys, which come from a crypto source.
func MathRandAlpha(n int) string {
	letters := []rune(runeLetters)
	b := make([]rune, n)
	gen := randutil.NewMathRandomGenerator()
	for i := range b {
		b[i] = letters[gen.Uint32()%uint32(len(letters))]
	}
	return string(b)
}

// FlattenErrs flattens multiple errors into one
func FlattenErrs(errs []error) error {
	errs2 := []error{}
	for _, e := range errs {
		if e != nil {
			errs2 = append(errs2, e)
		}
	}
	if len(errs2) == 0 {
		return nil
	}
	return multiError(errs2)
}

type multiError []error

func (me multiError) Error() string {
	var errstrings []string

	for _, err := range me {
		if err != nil {
			errstrings = append(errstrings, err.Error())
		}
	}

	if len(errstrings) == 0 {
		return "multiError must contain multiple error but is empty"
	}

	return strings.Join(errstrings, "\n")
}

func (me multiError) Is(err error) bool {
	for _, e := range me {
		if e == err {
			return true
		}
		if me2, ok := e.(multiError); ok {
			if me2.Is(err) {
				return true
			}
		}
	}
	return false
}
