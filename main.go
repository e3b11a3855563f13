package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"library-ledger/library"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "library-ledger",
		Short: "Library lending ledger over flat record files",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()
			runShell(engine)
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "library.yml", "path to the YAML config file")

	root.AddCommand(
		registerCmd(),
		addBookCmd(),
		issueCmd(),
		returnCmd(),
		searchCmd(),
		listCmd(),
		overdueCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openEngine() (*library.Engine, func() error, error) {
	cfg, err := library.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := library.NewEngine(store, library.NewCredentials(cfg.BcryptCost), cfg.LoanPeriodDays,
		library.WithLogger(logger))
	return engine, closeStore, nil
}

// readPassword reads a password with terminal echo disabled.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(raw)), nil
}

// ---------------------------------------------------------------------------
// Interactive shell
// ---------------------------------------------------------------------------

func runShell(engine *library.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	var session *library.Session

	fmt.Println("Welcome to the Library Ledger!")
	fmt.Println("Available commands:")
	fmt.Println("  Accounts: register, login, logout")
	fmt.Println("  Catalog: add book, search, list books")
	fmt.Println("  Circulation: issue, return, my loans, overdue")
	fmt.Println("  Librarian views: list members, list loans")
	fmt.Println("  System: exit")

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		cmd := strings.TrimSpace(scanner.Text())

		switch cmd {
		case "register":
			handleRegister(scanner, engine)
		case "login":
			session = handleLogin(scanner, engine)
		case "logout":
			session = nil
			fmt.Println("Logged out.")
		case "add book":
			handleAddBook(scanner, engine)
		case "search":
			handleSearch(scanner, engine)
		case "issue":
			handleIssue(scanner, engine)
		case "return":
			handleReturn(scanner, engine)
		case "my loans":
			handleMyLoans(engine, session)
		case "overdue":
			handleOverdue(engine)
		case "list books":
			handleListAll(engine, session, library.KindBooks)
		case "list members":
			handleListAll(engine, session, library.KindMembers)
		case "list loans":
			handleListAll(engine, session, library.KindLoans)
		case "exit":
			fmt.Println("Goodbye!")
			return
		case "":
			continue
		default:
			fmt.Println("Unknown command. Type one of the available commands listed above.")
		}
	}
}

func prompt(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func handleRegister(sc *bufio.Scanner, engine *library.Engine) {
	memberID, ok := prompt(sc, "Member ID: ")
	if !ok {
		return
	}
	name, ok := prompt(sc, "Name: ")
	if !ok {
		return
	}
	email, ok := prompt(sc, "Email: ")
	if !ok {
		return
	}
	password, err := readPassword("Password: ")
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return
	}
	if password == "" {
		fmt.Println("Error: Password cannot be empty")
		return
	}

	member, err := engine.RegisterMember(memberID, name, password, email)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Registered member %s (%s).\n", member.MemberID, member.Name)
}

func handleLogin(sc *bufio.Scanner, engine *library.Engine) *library.Session {
	memberID, ok := prompt(sc, "Member ID: ")
	if !ok {
		return nil
	}
	password, err := readPassword("Password: ")
	if err != nil {
		fmt.Printf("Error reading password: %v\n", err)
		return nil
	}
	roleStr, ok := prompt(sc, "Role (member/librarian): ")
	if !ok {
		return nil
	}

	session, err := engine.Login(memberID, password, library.Role(strings.ToLower(roleStr)))
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return nil
	}
	fmt.Printf("Welcome %s (%s)\n", session.Member.Name, session.Role)
	return session
}

func handleAddBook(sc *bufio.Scanner, engine *library.Engine) {
	isbn, ok := prompt(sc, "ISBN: ")
	if !ok {
		return
	}
	title, ok := prompt(sc, "Title: ")
	if !ok {
		return
	}
	author, ok := prompt(sc, "Author: ")
	if !ok {
		return
	}
	totalStr, ok := prompt(sc, "Copies total: ")
	if !ok {
		return
	}
	total, err := strconv.Atoi(totalStr)
	if err != nil {
		fmt.Printf("Invalid copy count: %s\n", totalStr)
		return
	}

	book := library.Book{ISBN: isbn, Title: title, Author: author, CopiesTotal: total, CopiesAvailable: total}
	if err := engine.AddBook(book); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Added '%s' by %s (%d copies).\n", title, author, total)
}

func handleSearch(sc *bufio.Scanner, engine *library.Engine) {
	query, ok := prompt(sc, "Title or author: ")
	if !ok {
		return
	}
	books, err := engine.SearchBooks(query)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printBooks(books)
}

func handleIssue(sc *bufio.Scanner, engine *library.Engine) {
	isbn, ok := prompt(sc, "ISBN: ")
	if !ok {
		return
	}
	memberID, ok := prompt(sc, "Member ID: ")
	if !ok {
		return
	}
	loan, err := engine.IssueBook(isbn, memberID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Issued loan %s, due %s.\n", loan.LoanID, loan.DueDate.Format(library.DateLayout))
}

func handleReturn(sc *bufio.Scanner, engine *library.Engine) {
	isbn, ok := prompt(sc, "ISBN: ")
	if !ok {
		return
	}
	memberID, ok := prompt(sc, "Member ID: ")
	if !ok {
		return
	}
	loan, err := engine.ReturnBook(isbn, memberID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Returned loan %s.\n", loan.LoanID)
}

func handleMyLoans(engine *library.Engine, session *library.Session) {
	loans, err := engine.ListMyLoans(session)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printLoans(loans)
}

func handleOverdue(engine *library.Engine) {
	loans, err := engine.OverdueLoans()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printLoans(loans)
}

// handleListAll renders the raw table for a kind. Gating on the librarian
// role happens here, in the caller, not in the engine.
func handleListAll(engine *library.Engine, session *library.Session, kind library.Kind) {
	if session == nil || session.Role != library.RoleLibrarian {
		fmt.Println("Error: librarian login required")
		return
	}
	rows, err := engine.ListAll(kind)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	schema, _ := library.SchemaFor(kind)
	printTable(schema.Columns, rows)
}

// ---------------------------------------------------------------------------
// Scripting subcommands
// ---------------------------------------------------------------------------

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <member-id> <name> <email>",
		Short: "Register a member (password prompted)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			member, err := engine.RegisterMember(args[0], args[1], password, args[2])
			if err != nil {
				return err
			}
			fmt.Printf("Registered member %s (%s).\n", member.MemberID, member.Name)
			return nil
		},
	}
}

func addBookCmd() *cobra.Command {
	var copies int
	cmd := &cobra.Command{
		Use:   "add-book <isbn> <title> <author>",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			book := library.Book{
				ISBN: args[0], Title: args[1], Author: args[2],
				CopiesTotal: copies, CopiesAvailable: copies,
			}
			if err := engine.AddBook(book); err != nil {
				return err
			}
			fmt.Printf("Added '%s' by %s (%d copies).\n", book.Title, book.Author, copies)
			return nil
		},
	}
	cmd.Flags().IntVar(&copies, "copies", 1, "number of copies")
	return cmd
}

func issueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <isbn> <member-id>",
		Short: "Issue a book to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			loan, err := engine.IssueBook(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Issued loan %s, due %s.\n", loan.LoanID, loan.DueDate.Format(library.DateLayout))
			return nil
		},
	}
}

func returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <isbn> <member-id>",
		Short: "Return a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			loan, err := engine.ReturnBook(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Returned loan %s.\n", loan.LoanID)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search books by title or author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			books, err := engine.SearchBooks(args[0])
			if err != nil {
				return err
			}
			printBooks(books)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "list <members|books|loans>",
		Short:     "Dump a whole collection (librarian view)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"members", "books", "loans"},
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			kind := library.Kind(args[0])
			rows, err := engine.ListAll(kind)
			if err != nil {
				return err
			}
			schema, _ := library.SchemaFor(kind)
			printTable(schema.Columns, rows)
			return nil
		},
	}
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List overdue loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeStore, err := openEngine()
			if err != nil {
				return err
			}
			defer closeStore()

			loans, err := engine.OverdueLoans()
			if err != nil {
				return err
			}
			printLoans(loans)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func printBooks(books []library.Book) {
	if len(books) == 0 {
		fmt.Println("No books found.")
		return
	}
	fmt.Printf("%-16s %-35s %-25s %-6s %-6s\n", "ISBN", "Title", "Author", "Total", "Avail")
	fmt.Println(strings.Repeat("-", 92))
	for _, b := range books {
		fmt.Printf("%-16s %-35s %-25s %-6d %-6d\n",
			b.ISBN, truncate(b.Title, 35), truncate(b.Author, 25), b.CopiesTotal, b.CopiesAvailable)
	}
}

func printLoans(loans []library.Loan) {
	if len(loans) == 0 {
		fmt.Println("No loans found.")
		return
	}
	fmt.Printf("%-8s %-12s %-16s %-12s %-12s %-12s\n", "Loan", "Member", "ISBN", "Issued", "Due", "Returned")
	fmt.Println(strings.Repeat("-", 78))
	for _, l := range loans {
		returned := "-"
		if !l.Active() {
			returned = l.ReturnDate.Format(library.DateLayout)
		}
		fmt.Printf("%-8s %-12s %-16s %-12s %-12s %-12s\n",
			l.LoanID, l.MemberID, l.ISBN,
			l.IssueDate.Format(library.DateLayout), l.DueDate.Format(library.DateLayout), returned)
	}
}

func printTable(columns []string, rows []library.Record) {
	if len(rows) == 0 {
		fmt.Println("No data found.")
		return
	}
	fmt.Println(strings.Join(columns, " | "))
	fmt.Println(strings.Repeat("-", len(strings.Join(columns, " | "))))
	for _, row := range rows {
		fmt.Println(strings.Join(row, " | "))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
