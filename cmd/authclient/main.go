package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	authclient "github.com/MrEthical07/authclient"
)

const usage = `usage: authclient [flags] <command> [args]

commands:
  login <username>      sign in; password from -password or the first stdin line
  register <username>   create an account and sign in
  logout                forget the stored tokens
  status                print whether a session is stored
  refresh               rotate the stored token pair
  get <path>            GET a backend path with the stored session

flags:
`

func main() {
	var (
		configPath = flag.String("config", "authclient.yaml", "YAML config file; missing is fine")
		baseURL    = flag.String("base-url", "", "override backend base URL")
		storeDir   = flag.String("store-dir", "", "token file directory when the config selects the memory store")
		password   = flag.String("password", "", "password for login/register; read from stdin when empty")
		email      = flag.String("email", "", "email for register")
		events     = flag.Bool("events", false, "log session events to stderr")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := authclient.LoadConfigFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *baseURL != "" {
		cfg.HTTP.BaseURL = strings.TrimRight(*baseURL, "/")
	}
	// a one-shot process cannot keep tokens in memory between invocations
	if cfg.Store.Backend == authclient.StoreMemory {
		dir := *storeDir
		if dir == "" {
			dir = authclient.DefaultStoreDir()
		}
		cfg.Store.Backend = authclient.StoreFile
		cfg.Store.Dir = dir
	}

	logger, err := authclient.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	builder := authclient.New().WithLogger(logger)
	if *events {
		cfg.Events.Enabled = true
		builder.WithEventSink(authclient.NewLogSink(logger))
	}
	client, err := builder.WithConfig(cfg).BuildContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init:", err)
		os.Exit(1)
	}
	defer client.Close()

	args := flag.Args()
	cmd := &command{client: client, out: os.Stdout, in: os.Stdin, password: *password, email: *email}
	if err := cmd.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type command struct {
	client   *authclient.Client
	out      io.Writer
	in       io.Reader
	password string
	email    string
}

func (c *command) run(ctx context.Context, name string, args []string) error {
	switch name {
	case "login":
		username, err := oneArg(name, args)
		if err != nil {
			return err
		}
		pw, err := c.readPassword()
		if err != nil {
			return err
		}
		if _, err := c.client.Login(ctx, username, pw); err != nil {
			return err
		}
		return c.printUser("signed in as")

	case "register":
		username, err := oneArg(name, args)
		if err != nil {
			return err
		}
		pw, err := c.readPassword()
		if err != nil {
			return err
		}
		req := authclient.RegisterRequest{Username: username, Password: pw, Email: c.email}
		if _, err := c.client.Register(ctx, req); err != nil {
			return err
		}
		return c.printUser("registered")

	case "logout":
		if err := c.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "signed out")
		return nil

	case "status":
		ok, err := c.client.Sync(ctx)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(c.out, "authenticated")
		} else {
			fmt.Fprintln(c.out, "not authenticated")
		}
		return nil

	case "refresh":
		if _, err := c.client.Refresh(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "token pair rotated")
		return nil

	case "get":
		path, err := oneArg(name, args)
		if err != nil {
			return err
		}
		req, err := c.client.NewRequest(ctx, "GET", path, nil)
		if err != nil {
			return err
		}
		resp, err := c.client.HTTPClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			fmt.Fprintf(os.Stderr, "HTTP %d\n", resp.StatusCode)
		}
		_, err = io.Copy(c.out, resp.Body)
		return err

	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) printUser(prefix string) error {
	sess := c.client.Session()
	if sess.User == nil {
		fmt.Fprintln(c.out, prefix)
		return nil
	}
	fmt.Fprintf(c.out, "%s %s (%s)\n", prefix, sess.User.Username, sess.User.ID)
	return nil
}

func (c *command) readPassword() (string, error) {
	if c.password != "" {
		return c.password, nil
	}
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required")
	}
	return line, nil
}

func oneArg(name string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s takes exactly one argument", name)
	}
	return args[0], nil
}
