package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pbftledger/config"
	"pbftledger/replica"
)

var (
	serveID      int
	servePort    int
	serveGenesis bool
	servePeers   []string
	serveMetrics string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a replica and open its operator console",
	Long:  `serve starts a replica's listener, optionally dials the peers given with --peer, and drops into an interactive console for submitting records, inspecting the chain and toggling Byzantine behavior.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Replica{ID: serveID, Port: servePort, Genesis: serveGenesis}
		for _, raw := range servePeers {
			p, err := config.ParsePeerAddr(raw)
			if err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			cfg.Peers = append(cfg.Peers, p)
		}
		runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&serveID, "id", 0, "this replica's numeric id")
	serveCmd.Flags().IntVar(&servePort, "port", 9000, "port this replica listens on")
	serveCmd.Flags().BoolVar(&serveGenesis, "genesis", false, "found the chain here instead of syncing it from a peer")
	serveCmd.Flags().StringArrayVar(&servePeers, "peer", nil, "peer to connect to at startup, id@host:port (repeatable)")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :2112 (empty disables it)")
}

func runServe(cfg config.Replica) {
	fmt.Println("config:", cfg)

	r := replica.New(cfg.ID, cfg.Port)
	if err := r.Start(cfg.Genesis); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	defer r.Stop()

	if serveMetrics != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(serveMetrics, nil); err != nil {
				fmt.Println("metrics server stopped:", err)
			}
		}()
	}

	for _, p := range cfg.Peers {
		if err := r.Connect(p.ID, p.Host, p.Port); err != nil {
			fmt.Printf("failed to connect to peer %d: %v\n", p.ID, err)
		}
	}

	rl, err := readline.New(fmt.Sprintf("peer-%d> ", cfg.ID))
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	fmt.Println(consoleUsage())
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF, readline.ErrInterrupt
			break
		}
		input := strings.Fields(line)
		if len(input) == 0 {
			continue
		}
		switch input[0] {
		case "submit":
			handleSubmit(r, input)
		case "chain":
			handleChain(r)
		case "peers":
			handlePeers(r)
		case "connect":
			handleConnect(r, input)
		case "byzantine":
			fmt.Println("byzantine mode:", r.ToggleByzantine())
		case "status":
			fmt.Printf("id=%d leader=%t byzantine=%t\n", r.ID(), r.IsLeader(), r.IsByzantine())
		case "help":
			fmt.Println(consoleUsage())
		case "exit", "quit":
			return
		default:
			fmt.Println("unknown command, use help to see available commands")
		}
	}
}

func consoleUsage() string {
	return strings.Join([]string{
		"available commands:",
		"  submit <data...>       propose a new record (leader only)",
		"  chain                  print the local chain",
		"  peers                  list known peers",
		"  connect <id> <host> <port>  bootstrap-connect to a peer",
		"  byzantine              toggle Byzantine fault injection",
		"  status                 print id, leadership and fault state",
		"  exit                   leave the console",
	}, "\n")
}

func handleSubmit(r *replica.Replica, input []string) {
	if len(input) < 2 {
		fmt.Println("usage: submit <data...>")
		return
	}
	data := strings.Join(input[1:], " ")
	if err := r.Submit(data); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println("proposed:", data)
}

func handleChain(r *replica.Replica) {
	c := r.Chain()
	if c == nil {
		fmt.Println("chain not initialized yet")
		return
	}
	fmt.Println(c)
}

func handlePeers(r *replica.Replica) {
	peers := r.Peers()
	if len(peers) == 0 {
		fmt.Println("no known peers")
		return
	}
	unreachable := make(map[int]bool)
	for _, id := range r.UnreachablePeers() {
		unreachable[id] = true
	}
	for id, port := range peers {
		status := "up"
		if unreachable[id] {
			status = "unreachable"
		}
		fmt.Printf("peer %d: 127.0.0.1:%d [%s]\n", id, port, status)
	}
}

func handleConnect(r *replica.Replica, input []string) {
	if len(input) != 4 {
		fmt.Println("usage: connect <id> <host> <port>")
		return
	}
	id, err := strconv.Atoi(input[1])
	if err != nil {
		fmt.Println("Error: invalid id:", err)
		return
	}
	port, err := strconv.Atoi(input[3])
	if err != nil {
		fmt.Println("Error: invalid port:", err)
		return
	}
	if err := r.Connect(id, input[2], port); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("connected to peer %d\n", id)
}
