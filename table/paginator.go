package table

// Paginator splits Count records into pages of PerPage.
type Paginator struct {
	Count   int
	PerPage int
}

// NumPages is at least 1, so an empty result still has a first page.
func (p Paginator) NumPages() int {
	if p.Count <= 0 || p.PerPage <= 0 {
		return 1
	}
	n := p.Count / p.PerPage
	if p.Count%p.PerPage != 0 {
		n++
	}
	return n
}

// Page returns page number n clamped to [1, NumPages].
func (p Paginator) Page(n int) Page {
	if n < 1 {
		n = 1
	}
	if last := p.NumPages(); n > last {
		n = last
	}
	return Page{Number: n, Paginator: p}
}

// PageAt returns the page containing record offset start.
func (p Paginator) PageAt(start int) Page {
	if p.PerPage <= 0 {
		return p.Page(1)
	}
	n := start / p.PerPage
	if last := p.NumPages(); n >= last {
		n = last - 1
	}
	return p.Page(n + 1)
}

// Page is one page of a Paginator.
type Page struct {
	Number    int
	Paginator Paginator
}

// Offset is the zero-based index of the first record of the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Paginator.PerPage
}

func (p Page) HasNext() bool {
	return p.Number < p.Paginator.NumPages()
}

func (p Page) HasPrevious() bool {
	return p.Number > 1
}

func (p Page) HasOtherPages() bool {
	return p.HasNext() || p.HasPrevious()
}

func (p Page) NextPageNumber() int {
	if p.HasNext() {
		return p.Number + 1
	}
	return p.Number
}

func (p Page) PreviousPageNumber() int {
	if p.HasPrevious() {
		return p.Number - 1
	}
	return p.Number
}

// StartIndex is the 1-based index of the first record on the page, or 0
// for an empty result.
func (p Page) StartIndex() int {
	if p.Paginator.Count == 0 {
		return 0
	}
	return p.Offset() + 1
}

// EndIndex is the 1-based index of the last record on the page.
func (p Page) EndIndex() int {
	end := p.Offset() + p.Paginator.PerPage
	if end > p.Paginator.Count {
		end = p.Paginator.Count
	}
	return end
}
