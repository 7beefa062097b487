package clipboard

import (
	"context"

	"github.com/atotto/clipboard"
)

// NativeStrategy writes through the OS clipboard utility.
type NativeStrategy struct {
	write       func(string) error
	unsupported bool
}

func NewNativeStrategy() *NativeStrategy {
	return &NativeStrategy{write: clipboard.WriteAll, unsupported: clipboard.Unsupported}
}

func (n *NativeStrategy) Name() string { return "native" }

func (n *NativeStrategy) Copy(ctx context.Context, text string) error {
	if n.unsupported {
		return ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.write(text)
}
