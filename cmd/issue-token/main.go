package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/trade_backend/config"
	"bitbucket.org/mmdatafocus/trade_backend/middlewares"
	"bitbucket.org/mmdatafocus/trade_backend/utils"
)

func main() {
	operatorID := flag.String("operator-id", "", "Operator id embedded in the token")
	operatorName := flag.String("operator-name", "", "Operator display name")
	permissions := flag.String("permissions", "*", "Comma-separated operations the token may perform")
	revoke := flag.String("revoke", "", "Revoke this token instead of issuing one (needs redis)")
	revokeFor := flag.Duration("revoke-for", 24*time.Hour, "How long the revocation is kept")
	flag.Parse()

	if *revoke != "" {
		config.ConnectRedisWithRetry()
		if !config.RedisEnabled() || config.GetRedisDB() == nil {
			fmt.Fprintln(os.Stderr, "revocation needs REDIS_ENABLED=true")
			os.Exit(1)
		}
		if err := config.SetRedisObject(middlewares.RevokedTokenKey(*revoke), true, *revokeFor); err != nil {
			fmt.Fprintf(os.Stderr, "revoke: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("token revoked")
		return
	}

	token, err := utils.JwtGenerate(*operatorID, *operatorName, utils.SplitAndTrim(*permissions))
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
