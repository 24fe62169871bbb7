// Package resize computes how a decoded image maps onto a requested size.
//
// The functions in this package are pure: identical inputs always produce
// identical rectangles, which keeps request keys and cached results stable
// across repeated loads of the same image.
package resize
