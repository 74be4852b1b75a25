package calculator

import "sort"

// selectionThreshold is the input size above which Percentile uses quickselect
const selectionThreshold = 1000

// Mean returns the arithmetic mean of values, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile returns the nearest-rank (rounded down) p-th percentile of
// values without modifying them. p is in [0, 100].
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	data := make([]float64, len(values))
	copy(data, values)

	k := int(float64(len(data)-1) * (p / 100.0))
	if k < 0 {
		k = 0
	}
	if k >= len(data) {
		k = len(data) - 1
	}

	if len(data) <= selectionThreshold {
		sort.Float64s(data)
		return data[k]
	}
	return quickSelect(data, k)
}

// quickSelect finds the k-th smallest element, reordering arr
func quickSelect(arr []float64, k int) float64 {
	left, right := 0, len(arr)-1
	for {
		if left == right {
			return arr[left]
		}
		pivotIndex := partition(arr, left, right)
		switch {
		case k == pivotIndex:
			return arr[k]
		case k < pivotIndex:
			right = pivotIndex - 1
		default:
			left = pivotIndex + 1
		}
	}
}

// partition moves the middle element into its sorted position
func partition(arr []float64, left, right int) int {
	mid := left + (right-left)/2
	pivot := arr[mid]
	arr[mid], arr[right] = arr[right], arr[mid]

	store := left
	for i := left; i < right; i++ {
		if arr[i] < pivot {
			arr[store], arr[i] = arr[i], arr[store]
			store++
		}
	}
	arr[right], arr[store] = arr[store], arr[right]
	return store
}
