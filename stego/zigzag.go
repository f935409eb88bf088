package stego

import (
	"fmt"

	qsp "github.com/BackendStack21/qsp-go"
)

// BlockSize is the DCT block edge.
const BlockSize = 8

// ZigZagOrder lists the (row, col) of each 8x8 DCT coefficient from lowest to
// highest frequency.
var ZigZagOrder = [BlockSize * BlockSize][2]int{
	{0, 0}, {0, 1}, {1, 0}, {2, 0}, {1, 1}, {0, 2}, {0, 3}, {1, 2},
	{2, 1}, {3, 0}, {4, 0}, {3, 1}, {2, 2}, {1, 3}, {0, 4}, {0, 5},
	{1, 4}, {2, 3}, {3, 2}, {4, 1}, {5, 0}, {6, 0}, {5, 1}, {4, 2},
	{3, 3}, {2, 4}, {1, 5}, {0, 6}, {0, 7}, {1, 6}, {2, 5}, {3, 4},
	{4, 3}, {5, 2}, {6, 1}, {7, 0}, {7, 1}, {6, 2}, {5, 3}, {4, 4},
	{3, 5}, {2, 6}, {1, 7}, {2, 7}, {3, 6}, {4, 5}, {5, 4}, {6, 3},
	{7, 2}, {7, 3}, {6, 4}, {5, 5}, {4, 6}, {3, 7}, {4, 7}, {5, 6},
	{6, 5}, {7, 4}, {7, 5}, {6, 6}, {5, 7}, {6, 7}, {7, 6}, {7, 7},
}

// ZigZag returns the block coordinates of the coefficient at a zig-zag index.
func ZigZag(index int) (row, col int, err error) {
	if index < 0 || index >= len(ZigZagOrder) {
		return 0, 0, fmt.Errorf("%w: zig-zag index %d out of range", qsp.ErrValidation, index)
	}
	rc := ZigZagOrder[index]
	return rc[0], rc[1], nil
}
