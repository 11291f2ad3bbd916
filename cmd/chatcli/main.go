package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nimbuschat/backend/internal/client"
	"github.com/nimbuschat/backend/internal/model/user"
)

var (
	username string
	password string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Terminal client for the nimbuschat gateway",
		Run:   runClient,
	}

	cobra.OnInitialize(loadConfig)

	rootCmd.Flags().StringVarP(&username, "username", "u", "", "login username")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "login password")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("chatcli")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.http_url", "http://localhost:3001")
	viper.SetDefault("server.ws_url", "ws://localhost:3001/ws/chat")

	// config file is optional, env vars and defaults cover the rest
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("Error reading config file: %v", err)
		}
	}
}

func runClient(cmd *cobra.Command, args []string) {
	httpURL := viper.GetString("server.http_url")
	wsURL := viper.GetString("server.ws_url")
	if username == "" {
		username = viper.GetString("username")
	}
	if password == "" {
		password = viper.GetString("password")
	}

	token, userID, err := login(httpURL, username, password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Printf("Logged in as %s\n", username)

	c := client.New(client.Config{
		URL:    wsURL,
		Token:  token,
		UserID: userID,
	}, client.Handlers{
		OnChunk: func(_, text string) {
			fmt.Printf("%s ", text)
		},
		OnComplete: func(_, fullText string) {
			fmt.Printf("\n[bot] %s\n> ", fullText)
		},
		OnError: func(message string) {
			fmt.Printf("\n[error] %s\n> ", message)
		},
		OnState: func(state client.State) {
			if state != client.StateConnected {
				fmt.Printf("\n[%s]\n", state)
			}
		},
	})
	defer c.Close()

	if err := c.Connect(); err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	fmt.Println("Connected. Type a message, or /quit to exit.")

	handleStdin(c)
}

// handleStdin reads messages from the terminal until EOF or /quit.
func handleStdin(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		switch {
		case text == "":
		case text == "/quit":
			return
		case text == "/reconnect":
			c.Nudge()
		default:
			if err := c.SendMessage(text); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

func login(httpURL, username, password string) (token, userID string, err error) {
	body, err := json.Marshal(user.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", "", err
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Post(httpURL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var loginResp user.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", "", err
	}
	return loginResp.AccessToken, loginResp.User.ID, nil
}
