package stdlib

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/carriercomm/Sparkling/vm"
)

var dbLog = commonlog.GetLogger("spn.db")

// ---------------------------------------------------------------------------
// Database library
// ---------------------------------------------------------------------------

// Scripts open a connection with dbopen("sqlite", "file.db") or
// dbopen("mysql", "user:pass@/dbname"). The handle is a userinfo value;
// releasing its last reference closes the connection, and dbclose
// closes it eagerly.

var dbDrivers = map[string]string{
	"sqlite": "sqlite",
	"mysql":  "mysql",
}

func loadDB(ctx *vm.Context) {
	ctx.RegisterNativeFns(map[string]vm.NativeFn{
		"dbopen":  dbOpen,
		"dbquery": dbQuery,
		"dbexec":  dbExec,
		"dbclose": dbClose,
	})
}

type dbHandle struct {
	db *sql.DB
}

func (h *dbHandle) close() {
	if h.db != nil {
		_ = h.db.Close()
		h.db = nil
	}
}

func dbHandleArg(ctx *vm.Context, fn string, argv []vm.Value, i int) (*dbHandle, bool) {
	if i < len(argv) && argv[i].IsUserInfo() {
		if h, ok := argv[i].UserInfo().(*dbHandle); ok {
			return h, true
		}
	}
	ctx.RuntimeError("%s: argument %d must be a database handle", fn, i+1)
	return nil, false
}

func dbOpen(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "dbopen", argv, 2) {
		return -1
	}
	driver, ok := wantString(ctx, "dbopen", argv, 0)
	if !ok {
		return -1
	}
	dsn, ok := wantString(ctx, "dbopen", argv, 1)
	if !ok {
		return -1
	}
	name, known := dbDrivers[driver.Content]
	if !known {
		return fail(ctx, "dbopen: unknown driver %q (want sqlite or mysql)", driver.Content)
	}
	db, err := sql.Open(name, dsn.Content)
	if err != nil {
		return fail(ctx, "dbopen: %v", err)
	}
	dbLog.Infof("opened %s connection", driver.Content)
	h := &dbHandle{db: db}
	*ret = vm.MakeStrongUserInfo(h, func(p any) {
		p.(*dbHandle).close()
	})
	return 0
}

// dbQuery runs a SELECT and returns the rows as an array of hashmaps
// keyed by column name. Numeric columns come back as ints or floats,
// NULLs as nil, everything else as strings.
func dbQuery(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if len(argv) < 2 {
		return fail(ctx, "dbquery: expecting a handle and a statement")
	}
	h, ok := dbHandleArg(ctx, "dbquery", argv, 0)
	if !ok {
		return -1
	}
	if h.db == nil {
		return fail(ctx, "dbquery: handle is closed")
	}
	query, ok := wantString(ctx, "dbquery", argv, 1)
	if !ok {
		return -1
	}
	params := make([]any, 0, len(argv)-2)
	for _, p := range argv[2:] {
		params = append(params, sqlParam(p))
	}

	rows, err := h.db.Query(query.Content, params...)
	if err != nil {
		return fail(ctx, "dbquery: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fail(ctx, "dbquery: %v", err)
	}

	out := vm.NewArray()
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			vm.ReleaseObject(out)
			return fail(ctx, "dbquery: %v", err)
		}
		row := vm.NewHashMap()
		for i, col := range cols {
			cell := sqlValue(cells[i])
			_ = row.SetStr(col, cell)
			cell.Release()
		}
		rowVal := vm.MakeObject(row)
		out.Push(rowVal)
		rowVal.Release()
	}
	if err := rows.Err(); err != nil {
		vm.ReleaseObject(out)
		return fail(ctx, "dbquery: %v", err)
	}
	*ret = vm.MakeObject(out)
	return 0
}

// dbExec runs a statement and returns the number of affected rows.
func dbExec(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if len(argv) < 2 {
		return fail(ctx, "dbexec: expecting a handle and a statement")
	}
	h, ok := dbHandleArg(ctx, "dbexec", argv, 0)
	if !ok {
		return -1
	}
	if h.db == nil {
		return fail(ctx, "dbexec: handle is closed")
	}
	stmtStr, ok := wantString(ctx, "dbexec", argv, 1)
	if !ok {
		return -1
	}
	params := make([]any, 0, len(argv)-2)
	for _, p := range argv[2:] {
		params = append(params, sqlParam(p))
	}
	res, err := h.db.Exec(stmtStr.Content, params...)
	if err != nil {
		return fail(ctx, "dbexec: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	*ret = vm.MakeInt(affected)
	return 0
}

func dbClose(ret *vm.Value, argv []vm.Value, ctx *vm.Context) int {
	if !wantArgc(ctx, "dbclose", argv, 1) {
		return -1
	}
	h, ok := dbHandleArg(ctx, "dbclose", argv, 0)
	if !ok {
		return -1
	}
	h.close()
	return 0
}

// sqlParam converts a script value to a driver parameter.
func sqlParam(v vm.Value) any {
	switch {
	case v.IsNil():
		return nil
	case v.IsBool():
		return v.Bool()
	case v.IsInt():
		return v.Int()
	case v.IsFloat():
		return v.Float()
	case v.IsString():
		return v.String().Content
	default:
		return v.Describe()
	}
}

// sqlValue converts a scanned cell to an owned script value.
func sqlValue(cell any) vm.Value {
	switch c := cell.(type) {
	case nil:
		return vm.MakeNil()
	case bool:
		return vm.MakeBool(c)
	case int64:
		return vm.MakeInt(c)
	case float64:
		return vm.MakeFloat(c)
	case []byte:
		return vm.MakeString(string(c))
	case string:
		return vm.MakeString(c)
	default:
		return vm.MakeString(fmt.Sprintf("%v", c))
	}
}
