//go:build !navdebug

package component

const haltOnViolation = false
