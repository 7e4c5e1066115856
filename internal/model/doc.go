// Package model defines shared data types used across the cell grid service.
//
// Conventions:
//   - The grid is fixed at Rows x Cols cells, addressed by zero-based (row, col)
//   - Cell numbers are 1-based and row-major: n = row*Cols + col + 1
//   - User IDs are opaque strings issued by the identity provider
package model
