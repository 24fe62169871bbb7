package decode

import (
	"context"
	"fmt"
)

// TransformationInterceptor applies the request's transformations, in
// order, to the decoded image and appends their tags.
type TransformationInterceptor struct{}

// NewTransformationInterceptor returns the transformation stage.
func NewTransformationInterceptor() *TransformationInterceptor {
	return &TransformationInterceptor{}
}

func (TransformationInterceptor) Intercept(ctx context.Context, chain *Chain) (*Result, error) {
	req := chain.Request()
	res, err := chain.Proceed(ctx, req)
	if err != nil {
		return nil, err
	}
	transformations := req.Transformations()
	if len(transformations) == 0 {
		return res, nil
	}

	out := res.WithDataFrom(res.DataFrom)
	img := out.Image.Image()
	for _, t := range transformations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := t.Transform(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("decode: transformation %s: %w", t.Key(), err)
		}
		if tr == nil {
			continue
		}
		img = tr.Image
		out.Transformeds = append(out.Transformeds, tr.Transformed)
	}
	out.Image = NewImage(img)
	return out, nil
}
