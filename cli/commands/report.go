package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/AshkanYarmoradi/go-fold/cli/styles"
	"github.com/AshkanYarmoradi/go-fold/cli/ui"
	"github.com/AshkanYarmoradi/go-fold/shoppingcart"
)

// writeMetrics prints every counter and histogram the command touched.
func writeMetrics(out io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	table := ui.NewTable("Metric", "Labels", "Value")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value string
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64)
			case dto.MetricType_HISTOGRAM:
				value = fmt.Sprintf("%d observations", m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			table.AddRow(mf.GetName(), formatLabels(m.GetLabel()), value)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, styles.Title.Render(styles.IconChart+" Metrics"))
	if table.Len() == 0 {
		fmt.Fprintln(out, styles.Muted.Render("  No metrics recorded"))
		return nil
	}
	fmt.Fprintln(out, table.Render())
	return nil
}

// formatLabels renders label pairs, leaving out the constant service label.
func formatLabels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.GetName() == "service" {
			continue
		}
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return strings.Join(parts, " ")
}

// renderCart formats a folded cart as key values followed by its items.
func renderCart(cart shoppingcart.ShoppingCart) string {
	var sb strings.Builder

	sb.WriteString(styles.Title.Render(styles.IconCart+" Cart "+cart.ID) + "\n\n")
	sb.WriteString(styles.FormatKeyValue("Client", cart.ClientID) + "\n")
	sb.WriteString(styles.FormatKeyValue("Status", cart.Status.String()) + " " + ui.StatusBadge(cart.Status.String()) + "\n")
	sb.WriteString(styles.FormatKeyValue("Opened", formatTime(cart.OpenedAt)) + "\n")
	if cart.ConfirmedAt != nil {
		sb.WriteString(styles.FormatKeyValue("Confirmed", formatTime(*cart.ConfirmedAt)) + "\n")
	}
	sb.WriteString("\n")

	if cart.ProductItems.Len() == 0 {
		sb.WriteString(styles.Muted.Render("  No product items") + "\n")
		return sb.String()
	}

	table := ui.NewTable("Product", "Quantity")
	for item := range cart.ProductItems.All() {
		table.AddRow(item.ProductID, strconv.Itoa(item.Quantity))
	}
	sb.WriteString(table.Render() + "\n")
	sb.WriteString(styles.FormatKeyValue("Total items", strconv.Itoa(cart.ProductItems.Total())) + "\n")

	return sb.String()
}

// renderHistory formats the state after every folded event, one row each.
func renderHistory(history []shoppingcart.ShoppingCart) string {
	table := ui.NewTable("Step", "Status", "Items", "Products")
	for i, cart := range history {
		products := make([]string, 0, cart.ProductItems.Len())
		for item := range cart.ProductItems.All() {
			products = append(products, fmt.Sprintf("%s×%d", item.ProductID, item.Quantity))
		}
		table.AddRow(
			strconv.Itoa(i+1),
			cart.Status.String(),
			strconv.Itoa(cart.ProductItems.Total()),
			strings.Join(products, ", "),
		)
	}
	return table.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
