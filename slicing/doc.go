/*
	Package slicing turns access patterns into ordered lists of frame-groups,
	divides those lists among worker ranks and handles the padding of
	frame-groups at dataset boundaries.
*/
package slicing
