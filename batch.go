package tresor

import (
	"context"

	"github.com/unkn0wn-root/tresor/expand"
	"github.com/unkn0wn-root/tresor/tag"
	"github.com/unkn0wn-root/tresor/tensor"
)

// ResolveBatch expands every template, derives one tag per combination for key
// and places the cached value at the combination's index. Results keep the
// order of templates. Cells never written stay nil.
//
// If g implements ManyGetter each template is resolved with a single GetMany.
func ResolveBatch(ctx context.Context, templates []expand.Template, key string, codec tag.Codec, g Getter) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(templates))
	mg, many := g.(ManyGetter)

	for i, tpl := range templates {
		t, err := tensor.Make(tpl.Shape())
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: "read_batch", Msg: "batch too large", Err: err}
		}
		out[i] = t
		if t.Len() == 0 {
			continue
		}

		if many {
			tags := make([]string, 0, t.Len())
			idxs := make([][]int, 0, t.Len())
			for path, idx := range tpl.Expand() {
				tags = append(tags, codec.Derive(path, key))
				idxs = append(idxs, idx)
			}
			vals, err := mg.GetMany(ctx, tags)
			if err != nil {
				return nil, err
			}
			for j, v := range vals {
				if err := t.Set(idxs[j], v); err != nil {
					return nil, internalErr("read_batch", "tensor placement", err)
				}
			}
			continue
		}

		for path, idx := range tpl.Expand() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v, err := g.Get(ctx, codec.Derive(path, key))
			if err != nil {
				return nil, err
			}
			if err := t.Set(idx, v); err != nil {
				return nil, internalErr("read_batch", "tensor placement", err)
			}
		}
	}
	return out, nil
}
