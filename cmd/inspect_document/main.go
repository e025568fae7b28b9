package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"itinerary-collab-be/internal/bootstrap"
	"itinerary-collab-be/internal/config"
	"itinerary-collab-be/pkg/compiler"
	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/events"
	pktNats "itinerary-collab-be/pkg/nats"

	"github.com/fatih/color"
)

func main() {
	asHTML := flag.Bool("html", false, "print the rendered HTML instead of the tree")
	follow := flag.Bool("follow", false, "after printing, stream document events from NATS")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: inspect_document [-html] [-follow] <document-id>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	documentID := flag.Arg(0)

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := bootstrap.NewSnapshotRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer closeStore()

	snapshot, err := repo.FindByDocumentId(ctx, documentID)
	if err != nil {
		log.Fatalf("Error: failed to load %s: %v", documentID, err)
	}
	if snapshot == nil {
		color.Yellow("No snapshot stored for %s (backend %s)", documentID, cfg.Snapshot.Backend)
	} else {
		color.Cyan("🔍 DOCUMENT %s @ v%d (saved %s)", snapshot.DocumentId, snapshot.Version, snapshot.UpdatedAt.Format("2006-01-02 15:04:05"))
		if *asHTML {
			out, err := compiler.Render(snapshot.Document)
			if err != nil {
				log.Fatalf("Error: render: %v", err)
			}
			fmt.Println(out)
		} else {
			printTree(snapshot.Document, 0, 0)
		}
	}

	if *follow {
		followEvents(ctx, cfg.App.NatsURL, documentID)
	}
}

// printTree prints one node per line with its start position.
func printTree(n *document.Node, pos, depth int) {
	indent := strings.Repeat("  ", depth)
	at := color.New(color.FgHiBlack).Sprintf("%4d", pos)

	switch n.Type {
	case document.TypeText:
		var marks []string
		for _, m := range n.Marks {
			marks = append(marks, string(m.Type))
		}
		line := color.GreenString("%q", n.Text)
		if len(marks) > 0 {
			line += color.MagentaString(" [%s]", strings.Join(marks, ","))
		}
		fmt.Printf("%s %s%s\n", at, indent, line)
		return
	case document.TypeLocation:
		a := n.Attrs.(document.LocationAttrs)
		line := color.BlueString("📍 %s", a.Name)
		fmt.Printf("%s %s%s %s\n", at, indent, line, color.New(color.FgHiBlack).Sprintf("(%s %.4f,%.4f %s)", a.PlaceID, a.Lat, a.Lng, a.TransportMode))
		return
	}

	label := color.YellowString("<%s>", n.Type)
	switch a := n.Attrs.(type) {
	case document.HeadingAttrs:
		label += fmt.Sprintf(" level=%d", a.Level)
	case document.OrderedListAttrs:
		label += fmt.Sprintf(" start=%d", a.Start)
	}
	fmt.Printf("%s %s%s\n", at, indent, label)

	// the root has no opening token; every other element does
	inner := pos
	if n.Type != document.TypeDoc {
		inner++
	}
	for _, child := range n.Content {
		printTree(child, inner, depth+1)
		inner += child.Size()
	}
}

func followEvents(ctx context.Context, url, documentID string) {
	if url == "" {
		color.Red("NATS_URL is not set, nothing to follow")
		return
	}
	sub, err := pktNats.NewSubscriber(url)
	if err != nil {
		color.Red("Failed to connect to NATS: %v", err)
		return
	}
	defer sub.Close()

	cc, err := sub.Subscribe(ctx, "*", "", func(_ context.Context, evt events.Event) error {
		data := evt.Payload()
		if id, _ := data["document_id"].(string); id != documentID {
			return nil
		}
		keys := make([]string, 0, len(data))
		for k := range data {
			if k != "document_id" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
		}
		fmt.Printf("%s %s %s\n",
			color.New(color.FgHiBlack).Sprint(evt.Timestamp().Format("15:04:05")),
			color.CyanString(evt.EventType()),
			strings.Join(parts, " "))
		return nil
	})
	if err != nil {
		color.Red("Failed to subscribe: %v", err)
		return
	}
	defer cc.Stop()

	color.Green("Following events for %s (Ctrl+C to stop)", documentID)
	<-ctx.Done()
}
