/*
	Package tomo provides the core types and utilities shared by the pipeline:
	leveled logging with optional rotating log files, keyword configurations,
	axis labels, element data types and chunk serialization with optional
	compression and checksums.
*/
package tomo
