// Package sqltrace records database calls as subsegments.
//
// Callers describe each call with a Command. The subsegment is named
// database@datasource, and the sql block carries the database type and
// version, the user and a connection string with the password removed.
// Query text is only kept when query collection is switched on.
//
//	cmd := sqltrace.Command{DriverName: "pgx", DataSource: "db:5432", Database: "orders", CommandText: q}
//	err := tracer.Exec(ctx, cmd, func(ctx context.Context) error {
//		_, err := db.ExecContext(ctx, q, args...)
//		return err
//	})
package sqltrace
