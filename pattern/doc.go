/*
	Package pattern defines named access patterns over N-dimensional datasets.

	A pattern splits the dimensions of a dataset into core dimensions, which
	together form a single frame handed to a plugin, and slice dimensions,
	which are iterated over.  Each dataset carries a Registry of the patterns
	it supports.
*/
package pattern
