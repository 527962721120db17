// Package cli defines the kskin command tree.
package cli
