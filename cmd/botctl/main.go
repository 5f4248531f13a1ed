package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"perpcontrol/internal/models"
	"perpcontrol/internal/store"
	"perpcontrol/pkg/config"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: botctl <command> [args]

Commands:
  bots                 List configured bots
  positions <bot_id>   List position snapshots for a bot
  retries              List pending retry queue entries
  trades <bot_id>      List recent trade records for a bot`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}

	config.InitDB()
	st := store.New(config.DB)

	switch os.Args[1] {
	case "bots":
		listBots()
	case "positions":
		listPositions(st, parseBotID())
	case "retries":
		listRetries(st)
	case "trades":
		listTrades(parseBotID())
	default:
		usage()
	}
}

func parseBotID() uint {
	if len(os.Args) < 3 {
		usage()
	}
	id, err := strconv.ParseUint(os.Args[2], 10, 32)
	if err != nil {
		log.Fatalf("Invalid bot id %q", os.Args[2])
	}
	return uint(id)
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func listBots() {
	var bots []models.BotConfig
	if err := config.DB.Order("id").Find(&bots).Error; err != nil {
		log.Fatal("Failed to list bots: ", err)
	}

	t := newTable(table.Row{"ID", "Name", "Market", "Leverage", "Max Size", "Side", "Active", "Failures", "Pause Reason"})
	for _, b := range bots {
		t.AppendRow(table.Row{
			b.ID, b.Name, b.Market, b.Leverage, b.MaxPositionSize,
			b.SideRestriction, b.Active, b.ConsecutiveFailures, b.PauseReason,
		})
	}
	t.Render()
}

func listPositions(st *store.Store, botID uint) {
	snaps, err := st.Snapshots(botID)
	if err != nil {
		log.Fatal("Failed to list positions: ", err)
	}

	t := newTable(table.Row{"Market", "Base Size", "Avg Entry", "Cost Basis", "Realized PnL", "Updated"})
	for _, s := range snaps {
		t.AppendRow(table.Row{
			s.Market, s.BaseSize, s.AvgEntryPrice, s.CostBasis, s.RealizedPnl,
			s.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}

func listRetries(st *store.Store) {
	entries, err := st.PendingRetries(100)
	if err != nil {
		log.Fatal("Failed to list retry entries: ", err)
	}

	t := newTable(table.Row{"ID", "Bot", "Market", "Side", "Size", "Attempt", "Next Retry", "Last Error"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID, e.BotID, e.Market, e.Side, e.Size,
			fmt.Sprintf("%d/%d", e.Attempt, e.MaxAttempts),
			e.NextRetryAt.Format("15:04:05"), e.LastError,
		})
	}
	t.Render()
}

func listTrades(botID uint) {
	var recs []models.TradeRecord
	if err := config.DB.Where("bot_id = ?", botID).Order("id DESC").Limit(50).Find(&recs).Error; err != nil {
		log.Fatal("Failed to list trade records: ", err)
	}

	t := newTable(table.Row{"ID", "Market", "Side", "Size", "Reduce", "Status", "Fill Price", "Error"})
	for _, r := range recs {
		fill := ""
		if r.FillPrice != nil {
			fill = strconv.FormatFloat(*r.FillPrice, 'f', -1, 64)
		}
		t.AppendRow(table.Row{r.ID, r.Market, r.Side, r.Size, r.ReduceOnly, r.Status, fill, r.ErrorMessage})
	}
	t.Render()
}
