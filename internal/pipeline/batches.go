package pipeline

// MaxBatchSize is the largest persona count requested from the content
// generation workflow in a single call.
const MaxBatchSize = 10

// PlanBatches splits a total persona count into batch sizes of at most
// MaxBatchSize, e.g. 23 -> [10, 10, 3].
func PlanBatches(total int) []int {
	var batches []int
	for remaining := total; remaining > 0; {
		size := min(remaining, MaxBatchSize)
		batches = append(batches, size)
		remaining -= size
	}
	return batches
}
