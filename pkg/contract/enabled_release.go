//go:build release

package contract

const enabled = false
