package service

// Tally 计算议题结果：按存储顺序统计各权重票数，
// 按权重首次出现的顺序比较，票数大于或等于当前最高票数即替换结果，
// 因此平票时后出现的权重胜出。没有投票时结果为0。
func Tally(weights []int) int {
	counts := make(map[int]int)
	order := make([]int, 0)
	for _, w := range weights {
		if _, seen := counts[w]; !seen {
			order = append(order, w)
		}
		counts[w]++
	}

	result, best := 0, 0
	for _, w := range order {
		if counts[w] >= best {
			result, best = w, counts[w]
		}
	}
	return result
}
