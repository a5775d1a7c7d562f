//go:build navdebug

package component

const haltOnViolation = true
