package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	timeout   string
	mode      string
	entryName string
	skillName string
	params    []string
	category  string
)

func main() {
	root := &cobra.Command{
		Use:   "skill-cli",
		Short: "CLI client for the dungeon skill sandbox",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SANDBOX_API_KEY"), "API key")

	// Validate command
	validateCmd := &cobra.Command{
		Use:   "validate [source]",
		Short: "Statically validate a fragment without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVar(&mode, "mode", "adhoc", "Mode (adhoc or named)")
	validateCmd.Flags().StringVar(&entryName, "entry", "", "Entry function name (named mode)")
	root.AddCommand(validateCmd)

	// Execute command
	execCmd := &cobra.Command{
		Use:   "exec [source]",
		Short: "Execute a fragment against the live session",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExec,
	}
	execCmd.Flags().StringVar(&timeout, "timeout", "", "Execution timeout, e.g. 10s")
	execCmd.Flags().StringVar(&mode, "mode", "adhoc", "Mode (adhoc or named)")
	execCmd.Flags().StringVar(&entryName, "entry", "", "Entry function name (named mode)")
	execCmd.Flags().StringVar(&skillName, "skill", "", "Run a stored skill instead of inline source")
	execCmd.Flags().StringArrayVar(&params, "param", nil, "Entry parameter as key=value (repeatable)")
	root.AddCommand(execCmd)

	// Execute from file
	execFileCmd := &cobra.Command{
		Use:   "exec-file [file]",
		Short: "Execute a fragment from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecFile,
	}
	execFileCmd.Flags().StringVar(&timeout, "timeout", "", "Execution timeout, e.g. 10s")
	execFileCmd.Flags().StringVar(&mode, "mode", "adhoc", "Mode (adhoc or named)")
	execFileCmd.Flags().StringVar(&entryName, "entry", "", "Entry function name (named mode)")
	execFileCmd.Flags().StringArrayVar(&params, "param", nil, "Entry parameter as key=value (repeatable)")
	root.AddCommand(execFileCmd)

	// Skill library
	skillsCmd := &cobra.Command{
		Use:   "skills",
		Short: "Manage the skill library",
	}
	listSkillsCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored skills",
		RunE:  runListSkills,
	}
	listSkillsCmd.Flags().StringVar(&category, "category", "", "Restrict to one category")
	skillsCmd.AddCommand(listSkillsCmd)
	skillsCmd.AddCommand(&cobra.Command{
		Use:   "save [name] [file]",
		Short: "Validate and store a skill from a file",
		Args:  cobra.ExactArgs(2),
		RunE:  runSaveSkill,
	})
	skillsCmd.AddCommand(&cobra.Command{
		Use:   "delete [name]",
		Short: "Remove a stored skill",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteSkill,
	})
	root.AddCommand(skillsCmd)

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	// List executions
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE:  runList,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func readSource(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

// parseParams turns key=value flags into a parameter map. Values that
// parse as JSON keep their type; everything else stays a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func runValidate(_ *cobra.Command, args []string) error {
	source, err := readSource(args)
	if err != nil {
		return err
	}
	return postAndPrint("/validate", map[string]any{
		"source":     source,
		"mode":       mode,
		"entry_name": entryName,
	}, nil)
}

func runExec(_ *cobra.Command, args []string) error {
	var source string
	if skillName == "" {
		var err error
		source, err = readSource(args)
		if err != nil {
			return err
		}
	}
	return executeFragment(source)
}

func runExecFile(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	return executeFragment(string(data))
}

func executeFragment(source string) error {
	p, err := parseParams(params)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"mode": mode,
	}
	if source != "" {
		payload["source"] = source
	}
	if skillName != "" {
		payload["skill"] = skillName
	}
	if entryName != "" {
		payload["entry_name"] = entryName
	}
	if p != nil {
		payload["params"] = p
	}
	if timeout != "" {
		payload["timeout"] = timeout
	}

	var result map[string]any
	if err := postAndPrint("/execute", payload, &result); err != nil {
		return err
	}

	// Exit nonzero when the fragment failed so scripts can branch on it.
	if success, ok := result["success"].(bool); ok && !success {
		os.Exit(1)
	}
	return nil
}

func runListSkills(_ *cobra.Command, _ []string) error {
	path := "/skills"
	if category != "" {
		path += "?category=" + category
	}
	return getAndPrint(path)
}

func runSaveSkill(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	return postAndPrint("/skills", map[string]any{
		"name":   args[0],
		"source": string(data),
	}, nil)
}

func runDeleteSkill(_ *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/skills/"+args[0], nil)
	if err != nil {
		return err
	}
	return doAndPrint(req, nil)
}

func runHealth(_ *cobra.Command, _ []string) error {
	return getAndPrint("/health")
}

func runList(_ *cobra.Command, _ []string) error {
	return getAndPrint("/executions")
}

func postAndPrint(path string, payload map[string]any, result *map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doAndPrint(req, result)
}

func getAndPrint(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doAndPrint(req, nil)
}

func doAndPrint(req *http.Request, result *map[string]any) error {
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 150 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if result != nil {
		if m, ok := decoded.(map[string]any); ok {
			*result = m
		}
	}

	formatted, _ := json.MarshalIndent(decoded, "", "  ")
	fmt.Println(string(formatted))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
