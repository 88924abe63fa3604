package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LittleBoy9/peerbeam/internal/config"
	"github.com/LittleBoy9/peerbeam/internal/identity"
	"github.com/LittleBoy9/peerbeam/internal/logging"
	"github.com/LittleBoy9/peerbeam/internal/mesh"
	"github.com/LittleBoy9/peerbeam/internal/rtc"
	"github.com/LittleBoy9/peerbeam/internal/signaling"
	"github.com/LittleBoy9/peerbeam/internal/ui"
)

const (
	transportServer = "server"
	transportLocal  = "local"
	transportManual = "manual"

	// Room ids identify nothing on the manual path; tokens do. This label
	// just gives the chat screen something to show.
	manualRoomLabel = "DIRECT"
)

var (
	flagChatTransport string
	flagChatName      string
	flagChatSaveName  bool
	flagChatServer    string
	flagChatCreate    bool
	flagChatRole      string
	flagChatSTUN      string
	flagChatTURN      string
	flagChatTURNUser  string
	flagChatTURNPass  string
)

var chatCmd = &cobra.Command{
	Use:     "chat [room-id]",
	Aliases: []string{"c"},
	Short:   "Join a room and chat with everyone in it",
	Long: `Join a chat room. Everyone sharing the room id ends up directly connected
to everyone else; messages go peer to peer, never through a server.

Transports:
  server  rendezvous through a relay (default, see 'peerbeam serve')
  local   in-process bus, for trying the chat screen out
  manual  no rendezvous at all: copy-paste tokens between exactly two peers

Examples:
  peerbeam chat ABCD
  peerbeam chat --create --name mallory
  peerbeam chat --transport manual --role offer
  peerbeam chat --transport manual --role answer`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Keep log lines from tearing the chat screen.
		logging.Init(slog.LevelError)

		room := ""
		if len(args) == 1 {
			room = args[0]
		}
		return runChat(room)
	},
}

func runChat(room string) error {
	cfg, err := config.Load(config.Options{
		ServerURL:  flagChatServer,
		STUNServer: flagChatSTUN,
		TURNServer: flagChatTURN,
		TURNUser:   flagChatTURNUser,
		TURNPass:   flagChatTURNPass,
	})
	if err != nil {
		return err
	}

	store, err := identity.NewProfileStore()
	if err != nil {
		ui.PrintWarningf("profile unavailable: %v", err)
		store = nil
	}
	name := identity.ResolveName(flagChatName, store)
	if flagChatSaveName && store != nil {
		if err := store.Save(identity.Profile{Name: name}); err != nil {
			ui.PrintWarningf("could not save name: %v", err)
		}
	}
	self := identity.New(name)

	created := room == "" && flagChatCreate
	room, err = resolveRoomID(room, flagChatCreate, flagChatTransport)
	if err != nil {
		return err
	}
	room = signaling.NormalizeRoomID(room)
	if created {
		ui.PrintSuccessf("Created room %s — share the id", room)
	}

	transport, manual, err := buildTransport(flagChatTransport, cfg, self)
	if err != nil {
		return err
	}

	coord := mesh.New(self, transport, rtc.NewPionDialer(cfg))
	defer coord.Leave()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if flagChatTransport == transportServer {
		stop := ui.RunConnectionSpinner("Connecting to " + cfg.ServerURL + "...")
		err = coord.Join(ctx, room)
		stop()
	} else {
		err = coord.Join(ctx, room)
	}
	if err != nil {
		return err
	}

	if manual != nil {
		role, _ := parseRole(flagChatRole)
		if err := runManualExchange(manual, role); err != nil {
			return err
		}
	}

	return ui.RunChat(coord, room, flagChatTransport)
}

// resolveRoomID picks the room id from the argument, --create, or the
// transport's needs.
func resolveRoomID(arg string, create bool, transport string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if create {
		return signaling.GenerateRoomID(), nil
	}
	if transport == transportManual {
		return manualRoomLabel, nil
	}
	return "", fmt.Errorf("room id required (or pass --create)")
}

func buildTransport(kind string, cfg *config.Config, self identity.Identity) (signaling.Transport, *signaling.ManualExchange, error) {
	switch kind {
	case transportServer:
		return signaling.NewWS(cfg.ServerURL), nil, nil
	case transportLocal:
		return signaling.NewBus().Endpoint(self.ID), nil, nil
	case transportManual:
		role, err := parseRole(flagChatRole)
		if err != nil {
			return nil, nil, err
		}
		exchange := signaling.NewManualExchange(role)
		return exchange, exchange, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want server, local, or manual)", kind)
	}
}

func parseRole(role string) (signaling.ManualRole, error) {
	switch role {
	case "offer":
		return signaling.RoleOffer, nil
	case "answer":
		return signaling.RoleAnswer, nil
	default:
		return 0, fmt.Errorf("unknown role %q (want offer or answer)", role)
	}
}

// runManualExchange walks the user through the offline token swap. The offer
// side shares an invite and consumes the reply; the answer side does the
// mirror image.
func runManualExchange(exchange *signaling.ManualExchange, role signaling.ManualRole) error {
	fmt.Println()
	fmt.Println(ui.TitleStyle.Render(ui.IconLink + " Manual peer link"))
	fmt.Println(ui.SubtitleStyle.Render("tokens travel over any channel you already share: IM, email, paper"))
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	if role == signaling.RoleOffer {
		token, err := gatherToken(exchange, "Gathering connection info...")
		if err != nil {
			return err
		}
		fmt.Println(ui.TokenView("Invite token — send this to your peer", token))
		fmt.Println()

		reply, err := promptToken(reader, "Paste their reply token: ")
		if err != nil {
			return err
		}
		if err := exchange.Feed(reply); err != nil {
			return err
		}
		ui.PrintSuccess("Reply accepted, connecting...")
		return nil
	}

	invite, err := promptToken(reader, "Paste the invite token: ")
	if err != nil {
		return err
	}
	if err := exchange.Feed(invite); err != nil {
		return err
	}

	token, err := gatherToken(exchange, "Building the reply...")
	if err != nil {
		return err
	}
	fmt.Println(ui.TokenView("Reply token — send this back", token))
	fmt.Println()
	return nil
}

// gatherToken waits for negotiation output to settle before packing it, so
// the token carries the description plus the candidates gathered so far.
func gatherToken(exchange *signaling.ManualExchange, message string) (string, error) {
	sp := ui.NewWaitingSpinner(message)
	sp.Start()

	deadline := time.Now().Add(10 * time.Second)
	last, quiet := 0, 0
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		n := exchange.Pending()
		if n > 0 && n == last {
			quiet++
			if quiet >= 3 {
				break
			}
		} else {
			quiet = 0
		}
		last = n
	}

	if exchange.Pending() == 0 {
		sp.Error("negotiation produced nothing to exchange")
		return "", fmt.Errorf("no envelopes to pack into a token")
	}
	sp.Stop()
	return exchange.Flush()
}

func promptToken(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(ui.BoldStyle.Render(prompt))
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&flagChatTransport, "transport", "t", "server", "Rendezvous transport: server, local, or manual")
	chatCmd.Flags().StringVarP(&flagChatName, "name", "n", "", "Display name for this session")
	chatCmd.Flags().BoolVar(&flagChatSaveName, "save-name", false, "Persist --name as the default")
	chatCmd.Flags().StringVarP(&flagChatServer, "server", "s", "", "Relay websocket URL")
	chatCmd.Flags().BoolVar(&flagChatCreate, "create", false, "Mint a fresh room id")
	chatCmd.Flags().StringVar(&flagChatRole, "role", "offer", "Manual transport role: offer or answer")
	chatCmd.Flags().StringVar(&flagChatSTUN, "stun", "", "Custom STUN server")
	chatCmd.Flags().StringVar(&flagChatTURN, "turn", "", "Custom TURN server")
	chatCmd.Flags().StringVar(&flagChatTURNUser, "turn-user", "", "TURN username")
	chatCmd.Flags().StringVar(&flagChatTURNPass, "turn-pass", "", "TURN password")
}
