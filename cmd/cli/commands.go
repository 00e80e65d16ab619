package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/and161185/msgstore/internal/model"
	"github.com/and161185/msgstore/internal/stanza"
	"github.com/and161185/msgstore/internal/storage"
)

var errUsage = errors.New("usage")

type app struct {
	st  *storage.Storage
	in  io.Reader
	out io.Writer
}

type stanzaRow struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
	Stanza    string    `json:"stanza"`
}

type presenceRow struct {
	UserID    string    `json:"userid"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status,omitempty"`
	Show      string    `json:"show,omitempty"`
	Priority  int       `json:"priority"`
}

type blobRow struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Mime     string `json:"mime,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Digest   string `json:"blake2b,omitempty"`
}

func (a *app) printJSON(v any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (a *app) readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(p)
}

// run executes one subcommand; args[0] is its name.
func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch args[0] {

	case "register":
		key := fs.String("key", "", "account key")
		code := fs.String("code", "", "code, generated when empty")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *key == "" {
			return errors.New("need -key")
		}
		c, err := a.st.Validations.Register(ctx, *key, *code)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, c)

	case "redeem":
		code := fs.String("code", "", "validation code")
		source := fs.String("source", "", "client address for throttling")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		key, err := a.st.Redeem(ctx, *source, *code)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, key)

	case "store":
		file := fs.String("file", "-", "stanza XML")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		raw, err := a.readAll(*file)
		if err != nil {
			return err
		}
		el, err := stanza.Parse(string(raw))
		if err != nil {
			return err
		}
		id, err := a.st.Stanzas.Store(ctx, el)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, id)

	case "offline":
		to := fs.String("to", "", "recipient")
		from := fs.String("from", "", "sender")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var (
			list []model.OfflineStanza
			err  error
		)
		switch {
		case *to != "":
			list, err = a.st.Stanzas.GetByRecipient(ctx, *to)
		case *from != "":
			list, err = a.st.Stanzas.GetBySender(ctx, *from)
		default:
			return errors.New("need -to or -from")
		}
		if err != nil {
			return err
		}
		rows := make([]stanzaRow, 0, len(list))
		for _, s := range list {
			rows = append(rows, stanzaRow{
				ID:        s.ID,
				Sender:    s.Sender,
				Recipient: s.Recipient,
				Timestamp: s.Timestamp,
				Stanza:    s.Stanza.String(),
			})
		}
		a.printJSON(rows)

	case "drop":
		id := fs.String("id", "", "stanza id")
		from := fs.String("from", "", "sender scope")
		to := fs.String("to", "", "recipient scope")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			return errors.New("need -id")
		}
		if err := a.st.Stanzas.Delete(ctx, *id, *from, *to); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")

	case "presence":
		user := fs.String("user", "", "user id")
		res := fs.String("resource", "", "resource")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *user == "" {
			return errors.New("need -user")
		}
		list, err := a.st.Presence.Get(ctx, *user, *res)
		if err != nil {
			return err
		}
		rows := make([]presenceRow, 0, len(list))
		for _, p := range list {
			rows = append(rows, presenceRow(p))
		}
		a.printJSON(rows)

	case "touch":
		addr := fs.String("addr", "", "bare or full address")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := a.st.Presence.Touch(ctx, *addr); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ok")

	case "peers":
		list, err := a.st.Network.GetList(ctx)
		if err != nil {
			return err
		}
		a.printJSON(list)

	case "put":
		name := fs.String("name", "", "blob name")
		file := fs.String("file", "", "content")
		mime := fs.String("mime", "", "content type")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" || *file == "" {
			return errors.New("need -name and -file")
		}
		var r io.Reader = a.in
		if *file != "-" {
			f, err := os.Open(*file)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		loc, err := a.st.Files.StoreFile(ctx, *name, *mime, r)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, loc)

	case "get":
		name := fs.String("name", "", "blob name")
		data := fs.Bool("data", false, "write content to stdout")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		b, err := a.st.Files.Get(ctx, *name, *data)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("blob %q not found", *name)
		}
		if *data {
			_, err = a.out.Write(b.Data)
			return err
		}
		a.printJSON(blobRow{Name: b.Name, Location: b.Location, Mime: b.Mime, Size: b.Size, Digest: hex.EncodeToString(b.Digest)})

	default:
		return errUsage
	}
	return nil
}
