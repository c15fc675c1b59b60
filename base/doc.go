/*

Package base provides base data structures and functions for the neighbor recommender.

The base data structures and functions include:

* Index between raw IDs and dense indices

* Sparse vectors and the dot product

*/
package base
