package metrics

// Histogram bucket layouts shared by the collectors in this package.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~4s range).
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor4 grows buckets by 4 for wide latency ranges.
	BucketFactor4 = 4

	BucketCount8  = 8
	BucketCount10 = 10
	BucketCount12 = 12

	// BucketLinearFillWidth and BucketLinearFillCount span a ring buffer fill ratio from 0 to 1 in tenths.
	BucketLinearFillWidth = 0.1
	BucketLinearFillCount = 11
)
