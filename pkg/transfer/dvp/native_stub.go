//go:build !dvp

package dvp

import (
	"fmt"

	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

func native() (api, error) {
	return nil, fmt.Errorf("%w: built without the dvp tag", transfer.ErrUnsupported)
}
