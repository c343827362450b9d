package sync

import (
	"context"

	"go.uber.org/zap"
)

// syncSequences copies each sequence's current value from source to
// destination. Values are read after the data transfer so they cover every
// copied row.
func (t *tableRun) syncSequences(ctx context.Context, seqs []string) error {
	for _, seq := range seqs {
		v, err := t.src.LastSequenceValue(ctx, seq)
		if err != nil {
			return adapterErr("read sequence", seq, err)
		}
		if err := t.dst.SetSequenceValue(ctx, seq, v); err != nil {
			return adapterErr("set sequence", seq, err)
		}
		t.log.Debug("Sequence restored", zap.String("sequence", seq), zap.Int64("value", v))
	}
	return nil
}
