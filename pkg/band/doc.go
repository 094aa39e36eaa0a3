// Package band splits a pixel buffer into horizontal row bands, one per
// render task.
//
// A band is described by an index range into the image buffer rather than by
// a slice, so the caller allocates the buffer once and hands each task the
// window buf[Start:End]. Bands produced by [Partition] are ordered by Top,
// pairwise disjoint, and together cover every row of the image exactly once.
// Disjointness is what lets the tasks write without locks.
//
// # Strategies
//
// Two banding strategies are available:
//
//   - [StrategyEven] spawns exactly as many bands as requested tasks. Band i
//     covers rows [i*H/n, (i+1)*H/n), so heights differ by at most one and
//     bands are empty when there are more tasks than rows.
//   - [StrategyLegacy] uses the older arithmetic
//     rowsPerBand = H/n + 1. It always produces full-width chunks of
//     rowsPerBand rows with a shorter last chunk, which can yield fewer
//     bands than requested (height 100 with 100 tasks gives 50 bands).
//
// Both strategies produce byte-identical images; they only differ in how the
// work is spread.
package band
