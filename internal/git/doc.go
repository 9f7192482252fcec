// Package git warns when secret files next to a store are exposed to git.
//
// The identity key signs every write for its account, so it must never be
// committed. Status reports whether each secret file is tracked by git or
// missing from .gitignore.
package git
