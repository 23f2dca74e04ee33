// Package rankfile writes TREC-style rank lists:
//
//	<query>\tQ0\t<doc>\t<rank>\t<score>\tCUR
//
// one line per retrieved document, queries in input order, ranks 1-based and
// score = 1 - distance.
package rankfile
