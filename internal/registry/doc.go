// Package registry maintains the index of skin packages installed under
// a root directory. The filesystem is the source of truth; the index is
// a rebuildable cache over it.
package registry
