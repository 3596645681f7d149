package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"avatar-backend/internal/pipeline"
)

func TestPlanBatches(t *testing.T) {
	assert.Equal(t, []int{10, 10, 3}, pipeline.PlanBatches(23))
	assert.Equal(t, []int{10}, pipeline.PlanBatches(10))
	assert.Equal(t, []int{3}, pipeline.PlanBatches(3))
	assert.Equal(t, []int{10, 1}, pipeline.PlanBatches(11))
	assert.Empty(t, pipeline.PlanBatches(0))
	assert.Empty(t, pipeline.PlanBatches(-5))
}

func TestPlanBatchesSumAndBounds(t *testing.T) {
	for total := 1; total <= 300; total++ {
		batches := pipeline.PlanBatches(total)

		sum := 0
		for i, size := range batches {
			assert.GreaterOrEqual(t, size, 1)
			assert.LessOrEqual(t, size, pipeline.MaxBatchSize)
			if i < len(batches)-1 {
				assert.Equal(t, pipeline.MaxBatchSize, size)
			}
			sum += size
		}
		assert.Equal(t, total, sum)
	}
}
