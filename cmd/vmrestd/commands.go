package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restcore/resthttpd"
)

// newRootCmd builds the command tree of printHelp/readOptionConfig/
// readOptionRestEngine/readOptionEndPoint/readOptionServer in the
// original CLI, one cobra.Command per sub-command.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "vmrestd",
		Short: "Interactive test client for the resthttpd engine",
		Long: "vmrestd drives a resthttpd.Engine through its configuration,\n" +
			"lifecycle, and endpoint-registration API from the command line\n" +
			"or from an interactive shell (see the shell sub-command).",
		SilenceUsage: true,
	}

	root.AddCommand(
		newConfigCmd(a),
		newRestEngineCmd(a),
		newEndpointCmd(a),
		newServerCmd(a),
		newShellCmd(a),
	)
	return root
}

func newConfigCmd(a *app) *cobra.Command {
	var (
		file          string
		port          int
		logFile       string
		sslKeyPath    string
		sslCertPath   string
		clientCnt     int
		workerThrCnt  int
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Provide configuration params to the REST engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				cfg, err := resthttpd.LoadConfigFile(file)
				if err != nil {
					return err
				}
				a.cfg = cfg
				fmt.Printf("Reading Config from File %s\n", file)
				return nil
			}

			cfg := a.cfg
			if port != 0 {
				cfg.Port = port
				fmt.Printf("Server will be listening on port %d\n", port)
			}
			if logFile != "" {
				cfg.DebugLogFile = logFile
				cfg.LogType = resthttpd.LogTypeFile
				fmt.Printf("Log file location %s\n", logFile)
			}
			if sslKeyPath != "" {
				cfg.SSLKeyPath = sslKeyPath
				fmt.Printf("SSL Key file %s\n", sslKeyPath)
			}
			if sslCertPath != "" {
				cfg.SSLCertPath = sslCertPath
				fmt.Printf("SSL Certificate File %s\n", sslCertPath)
			}
			if clientCnt != 0 {
				cfg.MaxClients = clientCnt
				fmt.Printf("Maximum Client %d\n", clientCnt)
			}
			if workerThrCnt != 0 {
				cfg.WorkerThreadCount = workerThrCnt
				fmt.Printf("Maximum worker thread spawned %d\n", workerThrCnt)
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "FILE", "f", "", "read configuration from file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "server port on which server will be listening")
	cmd.Flags().StringVarP(&logFile, "logfile", "l", "", "debug log file path")
	cmd.Flags().StringVarP(&sslKeyPath, "sslKeyPath", "k", "", "SSL key file path for secure communication")
	cmd.Flags().StringVarP(&sslCertPath, "sslCertPath", "c", "", "SSL certificate file path for secure communication")
	cmd.Flags().IntVarP(&clientCnt, "clientCnt", "C", 0, "maximum count of clients supported, defaults to 5")
	cmd.Flags().IntVarP(&workerThrCnt, "workerThrCnt", "W", 0, "maximum count of worker threads, defaults to 5")
	return cmd
}

func newRestEngineCmd(a *app) *cobra.Command {
	var (
		doInit     bool
		doShutdown bool
	)

	cmd := &cobra.Command{
		Use:   "restengine",
		Short: "Initialize/shutdown the REST engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case doInit:
				fmt.Println("Initializing Rest Engine ....")
				if err := a.initEngine(); err != nil {
					fmt.Printf("ERROR: Unable to initialize Rest Engine, Error code %d ....\n", exitCode(err))
					return err
				}
				fmt.Println("Initialized Rest Engine Successfully ....")
			case doShutdown:
				fmt.Println("Shutdown Rest Engine ....")
				if err := a.eng.Shutdown(); err != nil {
					fmt.Printf("ERROR: Unable to shutdown Rest Engine, Error code %d ....\n", exitCode(err))
					return err
				}
				if a.logger != nil {
					a.logger.Close()
				}
				fmt.Println("Shutdown Rest Engine Successful ....")
			default:
				return cmd.Help()
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&doInit, "init", "i", false, "init the REST engine")
	cmd.Flags().BoolVarP(&doShutdown, "shutdown", "s", false, "shutdown the REST engine")
	return cmd
}

func newEndpointCmd(a *app) *cobra.Command {
	var (
		registerURI   string
		deregisterURI string
	)

	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Register/deregister the REST endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if registerURI != "" {
				fmt.Printf("Registering REST Endpoint for URI %s\n", registerURI)
				if err := a.registerPackageEndpoint(registerURI); err != nil {
					fmt.Printf("ERROR: Registering REST Endpoint for URI %s failed, Error code %d\n", registerURI, exitCode(err))
					return err
				}
				fmt.Printf("REST endpoint %s registered successfully\n", registerURI)
			}
			if deregisterURI != "" {
				fmt.Printf("Deregistering REST Endpoint for URI %s\n", deregisterURI)
				if err := a.eng.Unregister(deregisterURI); err != nil {
					fmt.Printf("ERROR: removing REST Endpoint for URI %s failed, Error code %d\n", deregisterURI, exitCode(err))
					return err
				}
				fmt.Printf("REST endpoint %s removed successfully\n", deregisterURI)
			}
			if registerURI == "" && deregisterURI == "" {
				return cmd.Help()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&registerURI, "registerURI", "r", "", "register endpoint")
	cmd.Flags().StringVarP(&deregisterURI, "deregisterURI", "d", "", "deregister endpoint")
	return cmd
}

func newServerCmd(a *app) *cobra.Command {
	var (
		start bool
		stop  bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start/stop the REST server",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case start:
				fmt.Println("Starting Server ....")
				if err := a.eng.Start(); err != nil {
					fmt.Printf("ERROR: Unable to start server, Error code %d ....\n", exitCode(err))
					return err
				}
				fmt.Println("Started server successfully ....")
			case stop:
				fmt.Println("Stoping Server ....")
				if err := a.eng.Stop(a.cfg.ConnTimeoutSec); err != nil {
					fmt.Printf("ERROR: Unable to stop server, Error code %d ....\n", exitCode(err))
					return err
				}
				fmt.Println("Stopped server successfully ....")
			default:
				return cmd.Help()
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&start, "start", "s", false, "start the REST server")
	cmd.Flags().BoolVarP(&stop, "stop", "S", false, "stop the REST server")
	return cmd
}
