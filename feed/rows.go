package feed

import "moments/models"

// RowKind tags a row in the feed snapshot
type RowKind int

const (
	RowMoment RowKind = iota
	RowLoaderTop
	RowLoaderBottom
)

func (k RowKind) String() string {
	switch k {
	case RowMoment:
		return "moment"
	case RowLoaderTop:
		return "loader-top"
	case RowLoaderBottom:
		return "loader-bottom"
	}
	return "unknown"
}

// Row is one entry of the list handed to the presentation layer. Moment is
// only set for RowMoment rows.
type Row struct {
	Kind   RowKind
	Moment models.Moment
}

func (r Row) IsLoader() bool {
	return r.Kind == RowLoaderTop || r.Kind == RowLoaderBottom
}

// LoaderPosition is where the loader row is shown, if at all
type LoaderPosition int

const (
	LoaderNone LoaderPosition = iota
	LoaderTop
	LoaderBottom
)

func (p LoaderPosition) String() string {
	switch p {
	case LoaderNone:
		return "none"
	case LoaderTop:
		return "top"
	case LoaderBottom:
		return "bottom"
	}
	return "unknown"
}

// buildRows lays out items with the loader row inline. The loader is never
// part of items itself.
func buildRows(items []models.Moment, loader LoaderPosition) []Row {
	rows := make([]Row, 0, len(items)+1)
	if loader == LoaderTop {
		rows = append(rows, Row{Kind: RowLoaderTop})
	}
	for _, item := range items {
		rows = append(rows, Row{Kind: RowMoment, Moment: item})
	}
	if loader == LoaderBottom {
		rows = append(rows, Row{Kind: RowLoaderBottom})
	}
	return rows
}
