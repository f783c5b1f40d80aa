package model

import "sort"

// TreeNode is one node of a regression tree. Leaves carry the prediction,
// internal nodes split on Feature < Threshold.
type TreeNode struct {
	Leaf      bool      `json:"leaf"`
	Value     float64   `json:"value,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
}

// Predict walks the tree for one row.
func (n *TreeNode) Predict(row []float64) float64 {
	node := n
	for !node.Leaf {
		if row[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

type treeConfig struct {
	maxDepth int
	minLeaf  int
}

// fitTree grows a depth-bounded regression tree on (rows, targets) by
// greedy squared-error reduction. gains accumulates the total error
// reduction per feature for importance reporting.
func fitTree(rows [][]float64, targets []float64, idx []int, cfg treeConfig, depth int, gains []float64) *TreeNode {
	if depth >= cfg.maxDepth || len(idx) < 2*cfg.minLeaf {
		return &TreeNode{Leaf: true, Value: meanAt(targets, idx)}
	}

	feature, threshold, gain, ok := bestSplit(rows, targets, idx, cfg.minLeaf)
	if !ok {
		return &TreeNode{Leaf: true, Value: meanAt(targets, idx)}
	}
	gains[feature] += gain

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if rows[i][feature] < threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      fitTree(rows, targets, leftIdx, cfg, depth+1, gains),
		Right:     fitTree(rows, targets, rightIdx, cfg, depth+1, gains),
	}
}

// bestSplit scans every feature for the threshold with the largest squared
// error reduction, honoring the minimum leaf size.
func bestSplit(rows [][]float64, targets []float64, idx []int, minLeaf int) (feature int, threshold, gain float64, ok bool) {
	n := len(idx)
	if n < 2*minLeaf {
		return 0, 0, 0, false
	}

	parentSSE := sseAt(targets, idx)
	width := len(rows[idx[0]])

	order := make([]int, n)
	for f := 0; f < width; f++ {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return rows[order[a]][f] < rows[order[b]][f] })

		// Running sums let each candidate split evaluate in O(1).
		var leftSum, leftSq float64
		totalSum, totalSq := sumsAt(targets, idx)

		for pos := 0; pos < n-1; pos++ {
			y := targets[order[pos]]
			leftSum += y
			leftSq += y * y

			left := pos + 1
			right := n - left
			if left < minLeaf || right < minLeaf {
				continue
			}
			// Skip duplicate feature values; no valid threshold between them.
			if rows[order[pos]][f] == rows[order[pos+1]][f] {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			childSSE := (leftSq - leftSum*leftSum/float64(left)) +
				(rightSq - rightSum*rightSum/float64(right))

			if g := parentSSE - childSSE; g > gain {
				gain = g
				feature = f
				threshold = (rows[order[pos]][f] + rows[order[pos+1]][f]) / 2
				ok = true
			}
		}
	}
	return feature, threshold, gain, ok
}

func meanAt(targets []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += targets[i]
	}
	return sum / float64(len(idx))
}

func sumsAt(targets []float64, idx []int) (sum, sq float64) {
	for _, i := range idx {
		y := targets[i]
		sum += y
		sq += y * y
	}
	return sum, sq
}

func sseAt(targets []float64, idx []int) float64 {
	sum, sq := sumsAt(targets, idx)
	n := float64(len(idx))
	if n == 0 {
		return 0
	}
	return sq - sum*sum/n
}
