// Command pushctl publishes notifications and resolves approvals against a
// running webpush-service.
//
//	pushctl send [-title T] [-category C] [-group G] [-icon URL] [-webhook URL] MESSAGE
//	pushctl send-encrypted [-title T] MESSAGE
//	pushctl decrypt -nonce NONCE CIPHERTEXT
//	pushctl resolve -id APPROVAL_ID -state approved|rejected -token TEMP_TOKEN
//
// PUSH_SERVER_URL, PUSH_TOKEN and ENCRYPTION_KEY are read from the
// environment or a .env file.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"webpush-service/pkg/envelope"
)

const defaultServerURL = "http://localhost:8080/api/v0"

type settings struct {
	serverURL     string
	pushToken     string
	encryptionKey string
}

func loadSettings() settings {
	_ = godotenv.Load()
	s := settings{
		serverURL:     os.Getenv("PUSH_SERVER_URL"),
		pushToken:     os.Getenv("PUSH_TOKEN"),
		encryptionKey: os.Getenv("ENCRYPTION_KEY"),
	}
	if s.serverURL == "" {
		s.serverURL = defaultServerURL
	}
	s.serverURL = strings.TrimRight(s.serverURL, "/")
	return s
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	s := loadSettings()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(ctx, s, os.Args[2:])
	case "send-encrypted":
		err = runSendEncrypted(ctx, s, os.Args[2:])
	case "decrypt":
		err = runDecrypt(s, os.Args[2:], os.Stdout)
	case "resolve":
		err = runResolve(ctx, s, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pushctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pushctl send|send-encrypted|decrypt|resolve [flags] ...")
}

func runSend(ctx context.Context, s settings, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	title := fs.String("title", "", "notification title")
	category := fs.String("category", "", "notification category")
	group := fs.String("group", "", "notification group")
	icon := fs.String("icon", "", "https icon URL")
	webhook := fs.String("webhook", "", "webhook URL; makes this an approval request")
	_ = fs.Parse(args)

	h := header{{"title", *title}, {"category", *category}, {"group", *group}, {"icon_url", *icon}}
	if *webhook != "" {
		h = append(h, field{"type", "approval-process"}, field{"webhook_url", *webhook})
	}
	return publish(ctx, s, buildContent(h, strings.Join(fs.Args(), " ")))
}

func runSendEncrypted(ctx context.Context, s settings, args []string) error {
	fs := flag.NewFlagSet("send-encrypted", flag.ExitOnError)
	title := fs.String("title", "", "notification title")
	_ = fs.Parse(args)

	content, err := encryptedContent(*title, strings.Join(fs.Args(), " "), s.encryptionKey)
	if err != nil {
		return err
	}
	return publish(ctx, s, content)
}

// encryptedContent seals body and records the nonce in the header so any
// holder of the key can open it.
func encryptedContent(title, body, key string) (string, error) {
	sealed, err := envelope.Encrypt(body, key)
	if err != nil {
		return "", fmt.Errorf("encrypt message: %w", err)
	}
	extra, err := json.Marshal(map[string]string{"nonce": sealed.Nonce})
	if err != nil {
		return "", err
	}
	h := header{{"title", title}, {"type", "encrypted"}, {"extra", string(extra)}}
	return buildContent(h, sealed.Content), nil
}

func runDecrypt(s settings, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	nonce := fs.String("nonce", "", "nonce from the notification's extra metadata")
	_ = fs.Parse(args)

	fmt.Fprintln(out, decryptOrFallback(strings.Join(fs.Args(), " "), s.encryptionKey, *nonce))
	return nil
}

const contentUnavailable = "content unavailable"

// decryptOrFallback never fails: unreadable content renders as a placeholder.
func decryptOrFallback(content, key, nonce string) string {
	plain, err := envelope.Decrypt(content, key, nonce)
	if err != nil {
		return contentUnavailable
	}
	return plain
}

func runResolve(ctx context.Context, s settings, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	id := fs.String("id", "", "approval id")
	state := fs.String("state", "", "approved or rejected")
	token := fs.String("token", "", "temporary approval token")
	_ = fs.Parse(args)

	if *id == "" || *token == "" {
		return errors.New("-id and -token are required")
	}
	body := map[string]string{"approvalId": *id, "state": *state}
	return post(ctx, s.serverURL+"/approval", *token, body, os.Stdout)
}

func publish(ctx context.Context, s settings, content string) error {
	if s.pushToken == "" {
		return errors.New("PUSH_TOKEN is not set")
	}
	body := map[string]string{"pushToken": s.pushToken, "content": content}
	return post(ctx, s.serverURL+"/push", "", body, os.Stdout)
}

// post sends body as JSON and copies the response to out. Non-2xx is an error.
func post(ctx context.Context, url, bearer string, body any, out io.Writer) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Fprintln(out, strings.TrimSpace(string(respBody)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server answered %d", resp.StatusCode)
	}
	return nil
}
