// Package processor sequences the resolution stages for chart documents.
//
// A document is classified, loaded, resolved, correlated, validated and
// linted, in that order:
//
//	p := processor.New(loader, schema.NewValidator(schema.NewRegistry()))
//	doc, err := processor.LoadDocument(afero.NewOsFs(), "charts/budget.yaml")
//	if err != nil {
//		return err
//	}
//	res := p.ProcessDocument(ctx, doc, true)
//	if !res.OK() {
//		return res.Err()
//	}
//
// ProcessBatch and Generate run many documents concurrently. One failing
// document never stops the others.
package processor
