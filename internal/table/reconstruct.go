package table

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// ErrMalformedRow is returned when a rendered row cannot be read back.
var ErrMalformedRow = errors.New("malformed table row")

// dataCells is the number of leading cells carrying record fields.
const dataCells = 5

// Reconstruct reads rendered tbody markup back into records. Cells are
// read as text: id and quantity are parsed as integers and price has the
// currency prefix stripped before parsing. Rows with fewer than five
// cells, such as the empty-table placeholder, are skipped. Records that
// pass model.Sweet.Validate read back unchanged.
func Reconstruct(r io.Reader, currency string) ([]model.Sweet, error) {
	tbody := &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}
	nodes, err := html.ParseFragment(r, tbody)
	if err != nil {
		return nil, fmt.Errorf("parsing rows: %w", err)
	}

	sweets := []model.Sweet{}
	for i, n := range nodes {
		if n.Type != html.ElementNode || n.DataAtom != atom.Tr {
			continue
		}

		cells := cellTexts(n)
		if len(cells) < dataCells {
			continue
		}

		sweet, err := parseRow(cells, currency)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		sweets = append(sweets, sweet)
	}

	return sweets, nil
}

func parseRow(cells []string, currency string) (model.Sweet, error) {
	id, err := strconv.Atoi(strings.TrimSpace(cells[0]))
	if err != nil {
		return model.Sweet{}, fmt.Errorf("%w: id %q", ErrMalformedRow, cells[0])
	}

	priceText := strings.TrimSpace(cells[3])
	priceText = strings.TrimSpace(strings.TrimPrefix(priceText, currency))
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return model.Sweet{}, fmt.Errorf("%w: price %q", ErrMalformedRow, cells[3])
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(cells[4]))
	if err != nil {
		return model.Sweet{}, fmt.Errorf("%w: quantity %q", ErrMalformedRow, cells[4])
	}

	return model.Sweet{
		ID:       id,
		Name:     cells[1],
		Category: cells[2],
		Price:    price,
		Quantity: quantity,
	}, nil
}

// cellTexts returns the text content of each td child of a row.
func cellTexts(row *html.Node) []string {
	var cells []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			cells = append(cells, textContent(c))
		}
	}
	return cells
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
