// Package tool wraps the external command line tools the editor drives:
// apktool, jadx, smali and git.
//
// A tool is located once per process, in this order:
//
//  1. the configured toolchain directory
//  2. a bundled jar, launched with "java -jar"
//  3. the system PATH
//  4. common install paths
//
// Invocations never panic or return Go errors for tool failures. They
// return a Result whose Status is SUCCESS, FAILED, NOT_FOUND or CANCELLED.
// While a tool runs the caller's cancel predicate and context are polled;
// on cancellation the process receives SIGTERM and, after a grace period,
// SIGKILL.
//
//	runner := tool.NewRunner(tool.NewResolver(tool.WithToolchainDir(dir)))
//	res := tool.NewApktool(runner).Decode(ctx, "app.apk", "out", nil)
//	if res.Status != tool.StatusSuccess {
//	    log.Print(res.Message)
//	}
package tool
