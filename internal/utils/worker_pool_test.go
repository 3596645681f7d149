package utils_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"avatar-backend/internal/utils"
)

func TestRunInPool(t *testing.T) {
	queue := make(chan int, 10)
	for i := 0; i < 10; i++ {
		queue <- i
	}
	close(queue)

	worker := func(n int) (int, error) {
		if n%3 == 0 {
			return 0, fmt.Errorf("cannot process %d", n)
		}
		return n * n, nil
	}

	completed := make(chan utils.CompletedTask[int, int], 10)
	utils.RunInPool(worker, queue, completed, 4)

	succeeded := make(map[int]int)
	failed := make(map[int]bool)
	for done := range completed {
		if done.Error != nil {
			failed[done.Input] = true
			continue
		}
		succeeded[done.Input] = done.Result
	}

	assert.Len(t, succeeded, 6)
	assert.Len(t, failed, 4)
	for input, result := range succeeded {
		assert.Equal(t, input*input, result)
	}
	for input := range failed {
		assert.Zero(t, input%3)
	}
}

func TestRunInPoolEmptyQueue(t *testing.T) {
	queue := make(chan string)
	close(queue)

	completed := make(chan utils.CompletedTask[string, string])
	utils.RunInPool(func(s string) (string, error) { return s, nil }, queue, completed, 3)

	count := 0
	for range completed {
		count++
	}
	assert.Zero(t, count)
}
